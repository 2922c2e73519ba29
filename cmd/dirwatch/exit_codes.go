package main

const (
	exitCodeSuccess   = 0
	exitCodeUsage     = 1
	exitCodeDirectory = 2
	exitCodeWatch     = 3
)
