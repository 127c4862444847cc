// Copyright 2025 BlackRoad
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides structured JSON logging for gateway components.
// Every entry is a single JSON object on stdout so that log collectors can
// ingest gateway output without a parsing step.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging scoped to a gateway component.
type Logger struct {
	Component string
	Host      string

	// out overrides the destination, for tests. Nil means stdout via
	// the standard logger.
	out io.Writer
}

// LogEntry is the wire shape of a single log line.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	Host      string                 `json:"host"`
	Agent     string                 `json:"agent,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component.
func New(component string) *Logger {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Logger{
		Component: component,
		Host:      host,
	}
}

// Log creates a structured log entry and writes it to stdout.
func (l *Logger) Log(level LogLevel, agent, requestID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Host:      l.Host,
		Agent:     agent,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	if l.out != nil {
		fmt.Fprintln(l.out, string(jsonBytes))
		return
	}
	log.Println(string(jsonBytes))
}

// Info logs an informational message.
func (l *Logger) Info(agent, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, agent, requestID, message, fields)
}

// Error logs an error message.
func (l *Logger) Error(agent, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, agent, requestID, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(agent, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, agent, requestID, message, fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(agent, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, agent, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration_ms field.
func (l *Logger) InfoWithDuration(agent, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(agent, requestID, message, fields)
}

// ErrorWithCode logs an error with the HTTP status code that was sent.
func (l *Logger) ErrorWithCode(agent, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(agent, requestID, message, fields)
}
