package main

const (
	exitCodeSuccess = 0
	exitCodeUsage   = 1
	exitCodeFatal   = 2
	exitCodeAborted = 3
)
