package main

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(req *fn.HTTPRequest) *fn.HTTPResponse {
	return fn.NewHTTPResponse(201, "<h1>"+req.Method+"</h1>")
}
