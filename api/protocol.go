// Package api speaks the external runner's reporting channel: a
// websocket carrying JSON frames that mirror the runner-side task tree
// and announce collection, task updates and run completion.
package api

import (
	"encoding/json"
	"fmt"
)

// Task types reported by the runner.
const (
	TaskSuite = "suite"
	TaskTest  = "test"
)

// Task result states reported by the runner.
const (
	StatePass = "pass"
	StateFail = "fail"
	StateRun  = "run"
	StateSkip = "skip"
)

// Message types on the reporting channel.
const (
	MsgCollected  = "collected"
	MsgTaskUpdate = "taskUpdate"
	MsgFinished   = "finished"
	MsgRerun      = "rerun"
)

// TaskError carries a failed task's message.
type TaskError struct {
	Message string `json:"message"`
}

// TaskResult is the outcome attached to an executed task. Absent result
// means the task has not run yet.
type TaskResult struct {
	State    string     `json:"state"`
	Duration float64    `json:"duration,omitempty"` // milliseconds
	Error    *TaskError `json:"error,omitempty"`
}

// Task is one node of the runner-side tree: a suite with children or a
// leaf test.
type Task struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Tasks  []Task      `json:"tasks,omitempty"`
	Result *TaskResult `json:"result,omitempty"`
}

// File is the runner-side report unit: a file path and its task tree.
type File struct {
	Filepath string `json:"filepath"`
	Tasks    []Task `json:"tasks"`
}

// Message is one reporting-channel frame.
type Message struct {
	Type  string   `json:"type"`
	Files []File   `json:"files,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

// DecodeMessage validates a frame at the boundary. A malformed frame is
// rejected here with a structured error instead of surfacing later as a
// missing-field panic.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	switch msg.Type {
	case MsgCollected, MsgTaskUpdate:
		for i, f := range msg.Files {
			if f.Filepath == "" {
				return Message{}, fmt.Errorf("%s frame: files[%d] missing filepath", msg.Type, i)
			}
			if err := validateTasks(f.Tasks); err != nil {
				return Message{}, fmt.Errorf("%s frame: files[%d]: %w", msg.Type, i, err)
			}
		}
	case MsgFinished:
	case "":
		return Message{}, fmt.Errorf("frame has no type")
	default:
		return Message{}, fmt.Errorf("unknown frame type %q", msg.Type)
	}
	return msg, nil
}

func validateTasks(tasks []Task) error {
	for i, task := range tasks {
		switch task.Type {
		case TaskSuite:
			if err := validateTasks(task.Tasks); err != nil {
				return fmt.Errorf("tasks[%d] %q: %w", i, task.Name, err)
			}
		case TaskTest:
			if len(task.Tasks) > 0 {
				return fmt.Errorf("tasks[%d] %q: test task has children", i, task.Name)
			}
		default:
			return fmt.Errorf("tasks[%d]: unknown task type %q", i, task.Type)
		}
		if task.Name == "" {
			return fmt.Errorf("tasks[%d]: missing name", i)
		}
	}
	return nil
}
