/*
Copyright 2024 TillSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tillsync/tillsync"
	"github.com/tillsync/tillsync/api/middleware"
	"github.com/tillsync/tillsync/config"
)

type Api struct {
	service *tillsync.TillSync
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/sync/pos-transactions", a.SyncPosTransactions)
	router.GET("/pos-transactions/:client_tx_id", a.GetPosTransaction)
	router.GET("/pos-transactions/:client_tx_id/journal", a.GetJournalBatch)

	router.POST("/account-mappings", a.UpsertAccountMapping)
	router.GET("/account-mappings", a.GetAccountMapping)
	return a.router
}

func NewAPI(service *tillsync.TillSync) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{service: service, router: r}
}
