// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
)

// answerChunkRunes is how many runes go into each content frame. Small
// enough that the CLI's incremental rendering is visible.
const answerChunkRunes = 8

// =============================================================================
// Streaming Chat Endpoint
// =============================================================================

// AskStream handles POST /api/v1/ai/ask/stream.
//
// Streams a canned tutoring answer as SSE content frames, finished
// with the [DONE] sentinel. An unknown provider produces an in-band
// error frame rather than an HTTP error, which is how the production
// backend reports provider failures mid-stream.
func AskStream(providers []string, tokenDelay time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req backend.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		logger.Info("answer stream opened",
			"provider", req.Provider,
			"history_len", len(req.History),
			"request_id", c.GetHeader("X-Request-ID"))

		if req.Provider != "" && !slices.Contains(providers, req.Provider) {
			writer.WriteError(fmt.Sprintf("不支持的AI提供商: %s", req.Provider))
			writer.WriteDone()
			return
		}

		answer := cannedAnswer(req)
		for _, chunk := range chunkRunes(answer, answerChunkRunes) {
			if err := writer.WriteContent(chunk); err != nil {
				logger.Warn("client disconnected mid-stream", "error", err)
				return
			}
			if tokenDelay > 0 {
				select {
				case <-c.Request.Context().Done():
					return
				case <-time.After(tokenDelay):
				}
			}
		}
		writer.WriteDone()
	}
}

// cannedAnswer builds a deterministic tutoring answer for the prompt.
// It includes raw LaTeX in the shapes real providers emit so the
// CLI's math normalization has something to chew on.
func cannedAnswer(req backend.AskRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "关于「%s」，我们一步一步来分析。\n\n", strings.TrimSpace(req.Prompt))
	if len(req.History) > 0 {
		fmt.Fprintf(&b, "结合前面 %d 条对话的内容：\n\n", len(req.History))
	}
	b.WriteString("举一个例子：过两点的直线斜率为 \\frac{y_2 - y_1}{x_2 - x_1}，")
	b.WriteString("当 \\(x_2 = x_1\\) 时斜率不存在。\n\n")
	b.WriteString("更一般地：\n\\[ y - y_1 = k(x - x_1) \\]\n\n")
	b.WriteString("如果还有不清楚的地方，可以继续问我。")
	return b.String()
}

// chunkRunes splits s into chunks of at most size runes, never
// splitting a multi-byte character.
func chunkRunes(s string, size int) []string {
	runes := []rune(s)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
