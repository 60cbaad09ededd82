package errutils

// Package errutils provides a set of utilities for working with errors in Go.

// Example:
//
// The following example demonstrates how to use `MultiError` to collect several errors into one:
//
//     package main
//
//     import (
//         "fmt"
//         "oss.nandlabs.io/keephive/errutils"
//     )
//
//     func main() {
//         errs := errutils.NewMultiErr(nil)
//         errs.Add(firstStep())
//         errs.Add(secondStep())
//         if errs.HasErrors() {
//             fmt.Println(errs)
//         }
//     }
//
// In the above example, `Add` ignores nil errors, so only real failures are collected.
// Printing the `MultiError` prints the collected messages, one per line.
