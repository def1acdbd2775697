package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "net/http/pprof"
)

func main() {
	log, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(log)
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.AddConfigPath("./")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	err := viper.ReadInConfig()
	if err != nil {
		log.Sugar().Fatal("init config error:", err)
	}

	err = viper.Unmarshal(&DefConfig)
	if err != nil {
		log.Sugar().Fatal("init config unmarshal error:", err)
	}

	loglevel := logger.Error
	if DefConfig.DBLog {
		loglevel = logger.Info
	}
	db, err := gorm.Open(postgres.Open(DefConfig.DB), &gorm.Config{
		Logger: logger.New(zap.NewStdLog(zap.L()), logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      loglevel,
		}),
	})
	if err != nil {
		log.Sugar().Fatal("open db:", err)
	}
	if err := db.AutoMigrate(new(Message), new(Notification)); err != nil {
		log.Sugar().Fatal("migrate:", err)
	}

	node := newNode(NewDBMessageStore(db), NewDBNotificationStore(db))
	defer node.Close()

	go func() {
		// pprof registers on the default mux; metrics ride along.
		http.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(DefConfig.OpsHost, nil)
	}()

	r := newRouter(node)
	log.Sugar().Info("Start:", DefConfig.Host)
	if err := r.Run(DefConfig.Host); err != nil {
		log.Sugar().Fatal("ListenAndServe: ", err)
	}
}
