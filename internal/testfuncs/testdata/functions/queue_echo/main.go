package main

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(ctx *fn.Context, msg *fn.QueueMessage, out *fn.Out[string]) {
	out.Set("echo: " + string(msg.Body))
}
