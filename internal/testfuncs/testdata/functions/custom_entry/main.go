package main

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func Handle(req *fn.HTTPRequest) string {
	return "custom " + req.Method
}
