package main

import (
	"strconv"

	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(blob *fn.InputStream) string {
	return strconv.FormatInt(blob.Length, 10)
}
