package main

import "github.com/pkg/errors"

func errUsage(msg string) error {
	return errors.New(msg)
}
