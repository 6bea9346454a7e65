/*
Contortionist - Mail content filtering relay.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors
Copyright © 2026 Contortionist contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package msgstore

import (
	"fmt"
	"strings"
)

// MessageStatus is the processing state of a stored message.
type MessageStatus int

const (
	MessageNew MessageStatus = iota + 1
	MessageWorking
	MessageSending
	MessageDone
	MessageError
)

var messageStatusNames = map[MessageStatus]string{
	MessageNew:     "new",
	MessageWorking: "working",
	MessageSending: "sending",
	MessageDone:    "done",
	MessageError:   "error",
}

func (s MessageStatus) String() string {
	if name, ok := messageStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("MessageStatus(%d)", int(s))
}

func (s MessageStatus) valid() bool {
	_, ok := messageStatusNames[s]
	return ok
}

// JobStatus is the state of a filtering job created for a message.
type JobStatus int

const (
	JobNew JobStatus = iota + 1
	JobWorking
	JobDone
	JobError
)

// TaskStatus is the state of a single step of a job.
type TaskStatus int

const (
	TaskNew TaskStatus = iota + 1
	TaskWorking
	TaskDone
	TaskError
)

var workStatusNames = []string{"", "new", "working", "done", "error"}

func (s JobStatus) String() string {
	if s.valid() {
		return workStatusNames[s]
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

func (s JobStatus) valid() bool {
	return s >= JobNew && s <= JobError
}

func (s TaskStatus) String() string {
	if s.valid() {
		return workStatusNames[s]
	}
	return fmt.Sprintf("TaskStatus(%d)", int(s))
}

func (s TaskStatus) valid() bool {
	return s >= TaskNew && s <= TaskError
}

// ParseMessageStatus converts a status name (case-insensitive) into a
// MessageStatus.
func ParseMessageStatus(name string) (MessageStatus, error) {
	name = strings.ToLower(name)
	for status, n := range messageStatusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("msgstore: unknown message status: %s", name)
}

func parseWorkStatus(name string) (int, error) {
	name = strings.ToLower(name)
	for i, n := range workStatusNames {
		if i != 0 && n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("msgstore: unknown status: %s", name)
}

// ParseJobStatus converts a status name (case-insensitive) into a JobStatus.
func ParseJobStatus(name string) (JobStatus, error) {
	i, err := parseWorkStatus(name)
	return JobStatus(i), err
}

// ParseTaskStatus converts a status name (case-insensitive) into a
// TaskStatus.
func ParseTaskStatus(name string) (TaskStatus, error) {
	i, err := parseWorkStatus(name)
	return TaskStatus(i), err
}
