package main

import (
	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(req int) string {
	return ""
}
