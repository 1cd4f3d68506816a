// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"llm-sentinel-api/internal/interfaces/http/dto"
)

// bindJSON 解析 JSON 请求体，失败时写出 400
func bindJSON[T any](c *gin.Context) (*T, bool) {
	var req T
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return nil, false
	}
	return &req, true
}

// bindQuery 解析查询参数，失败时写出 400
func bindQuery[T any](c *gin.Context) (*T, bool) {
	var query T
	if err := c.ShouldBindQuery(&query); err != nil {
		dto.BadRequest(c, "invalid query parameters: "+err.Error())
		return nil, false
	}
	return &query, true
}

// projectID 取出 ProjectScope 中间件注入的项目 ID
func projectID(c *gin.Context) string {
	return c.GetString("project_id")
}
