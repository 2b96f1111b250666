package main

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(context string, req *fn.HTTPRequest) string {
	return ""
}
