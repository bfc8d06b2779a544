// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command zhixue is the Zhixueban learning platform CLI.
//
// # Usage
//
//	zhixue init            # interactive configuration
//	zhixue chat            # interactive AI tutoring session
//	zhixue sessions list   # list saved conversations
//	zhixue providers       # list available AI providers
//
// Conversations are persisted to the Zhixueban backend for logged-in
// users and to a local store in guest mode.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
