package main

import (
	"time"

	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(ctx *fn.Context, req *fn.HTTPRequest) (string, error) {
	ctx.Logger().Error().Msg("one error")
	time.Sleep(10 * time.Millisecond)
	ctx.Logger().Error().Msg("and another error")
	return "OK-async", nil
}
