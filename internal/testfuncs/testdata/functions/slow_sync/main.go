package main

import (
	"time"

	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(ctx *fn.Context, req *fn.HTTPRequest) string {
	time.Sleep(50 * time.Millisecond)
	return "done"
}
