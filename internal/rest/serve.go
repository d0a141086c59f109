// Copyright (C) 2021 The pguresvt authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package rest exposes the denoising engine over HTTP. Responses stream the
// processing log as plain text so long runs show progress
package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pguresvt/pguresvt/internal/cube"
	"github.com/pguresvt/pguresvt/internal/engine"
)

func Serve() {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/denoise", postDenoise)
		}
	}
	r.Run() // listen and serve on 0.0.0.0:8080
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postDenoiseArgs struct {
	FilePatterns []string       `json:"filePatterns"`
	Config       *engine.Config `json:"config"`
	Output       string         `json:"output"`
	Preview      string         `json:"preview"`
}

func postDenoise(c *gin.Context) {
	logWriter := c.Writer
	var args postDenoiseArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Config == nil {
		args.Config = engine.NewConfig()
	}
	if args.Output == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "output pattern required"})
		return
	}
	for _, p := range append(append([]string{args.Output}, args.FilePatterns...), args.Preview) {
		if p != "" && !isPathAllowed(p) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("path not allowed: %s", p)})
			return
		}
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	fileNames, err := cube.GlobSequence(args.FilePatterns)
	if err != nil {
		fmt.Fprintf(logWriter, "Error globbing filenames: %s\n", err.Error())
		return
	}
	in, err := cube.LoadSequenceTIFF(fileNames, logWriter)
	if err != nil {
		fmt.Fprintf(logWriter, "Error loading frames: %s\n", err.Error())
		return
	}

	out, err := engine.Denoise(in, args.Config, logWriter)
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		logWriter.(http.Flusher).Flush()
		return
	}

	outMin, outMax := out.MinMax()
	if err := out.WriteSequenceTIFF16(args.Output, outMin, outMax, 1.0, logWriter); err != nil {
		fmt.Fprintf(logWriter, "Error writing output: %s\n", err.Error())
	}
	if args.Preview != "" {
		if err := out.WritePreviewJPGToFile(args.Preview, out.Nt/2, outMin, outMax, 1.0, 95); err != nil {
			fmt.Fprintf(logWriter, "Error writing preview: %s\n", err.Error())
		}
	}
	logWriter.(http.Flusher).Flush()
}
