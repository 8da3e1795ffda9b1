package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MessageResponse 错误及简单结果的响应体
type MessageResponse struct {
	Message string `json:"message"`
}

// OK 成功响应（200），直接返回数据本身
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// NoContent 无内容响应（204）
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 错误响应，响应体为 {"message": msg}
func Error(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, MessageResponse{Message: msg})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"message": msg}
	if err != nil {
		body["errors"] = []string{err.Error()}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}

// NotFound 资源不存在错误（404）
func NotFound(c *gin.Context, msg string) {
	Error(c, http.StatusNotFound, msg)
}

// InternalError 服务器内部错误（500），错误原因写入 gin 上下文供请求日志记录
func InternalError(c *gin.Context, msg string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	Error(c, http.StatusInternalServerError, msg)
}
