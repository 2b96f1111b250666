package main

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(req *fn.HTTPRequest, foo *fn.Out[*fn.HTTPResponse]) {
	foo.Set(fn.NewHTTPResponse(200, "FOO"))
}
