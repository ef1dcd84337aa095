package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"
	"github.com/zeromicro/go-zero/rest"

	"github.com/StefanIliev545/kapan-sub001/internal/config"
	"github.com/StefanIliev545/kapan-sub001/internal/handler"
	"github.com/StefanIliev545/kapan-sub001/internal/svc"
	"github.com/StefanIliev545/kapan-sub001/pkg/logger"
)

var configFile = flag.String("f", "etc/planner.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.PlannerConfig
	conf.MustLoad(*configFile, &c)

	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.Debugf("生效配置:\n%s", c.Dump())

	serviceContext, err := svc.NewServiceContext(c)
	if err != nil {
		panic(err)
	}

	server := rest.MustNewServer(rest.RestConf{Host: c.Rest.Host, Port: c.Rest.Port})
	handler.RegisterHandlers(server, serviceContext)

	sg := zerosvc.NewServiceGroup()
	sg.Add(server)

	logx.Infof("Starting leverage planner service at %s:%d", c.Rest.Host, c.Rest.Port)

	// 启动服务
	sg.Start()

	// 等待退出信号
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logx.Info("Shutting down services...")
	sg.Stop()
}
