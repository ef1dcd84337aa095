package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"github.com/StefanIliev545/kapan-sub001/internal/svc"
)

// RegisterHandlers 挂载计划服务的全部路由
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	server.AddRoutes([]rest.Route{
		{
			Method:  http.MethodPost,
			Path:    "/v1/leverage/plan",
			Handler: PlanHandler(svcCtx),
		},
	})
}
