package main

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(ctx *fn.Context, req *fn.HTTPRequest) string {
	ctx.Logger().Error().Msg("a gracefully handled error")
	return "OK-sync"
}
