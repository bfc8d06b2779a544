// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
)

// Providers handles GET /api/v1/ai/providers.
func Providers(providers []string, current string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, backend.ProvidersResponse{
			Providers: providers,
			Current:   current,
		})
	}
}
