package main

import (
	"errors"

	"github.com/watzon/alyx-worker/pkg/fn"
)

func Main(req *fn.HTTPRequest) (string, error) {
	if req.Query["name"] == "" {
		return "", errors.New("name is required")
	}
	return "hello " + req.Query["name"], nil
}
