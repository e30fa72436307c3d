// Package main provides the command-line interface of bdsync-manager.
//
// It parses flags and task selectors, configures logging, installs the
// interrupt-aware run context and hands the selected tasks to the backup
// package's task runner.
//
// For the task execution pipeline, see the backup package.
package main
