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

// Package msgstore keeps track of messages accepted by the relay and of the
// filtering jobs and tasks created for them.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mjcaley/contortionist/framework/exterrors"
	"github.com/mjcaley/contortionist/framework/log"
	"github.com/mjcaley/contortionist/internal/sqlbridge"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("msgstore: not found")

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	message BLOB NOT NULL,
	status INTEGER NOT NULL,
	created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS messages_status ON messages (status);
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL REFERENCES messages (id),
	status INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL REFERENCES jobs (id),
	name TEXT NOT NULL,
	priority INTEGER NOT NULL,
	status INTEGER NOT NULL
);
`

const (
	writeAttempts = 3
	retryDelay    = 100 * time.Millisecond
)

// maxParallelReads limits the number of reads GetMessages keeps queued at
// once.
const maxParallelReads = 8

// Message is a stored message.
type Message struct {
	ID      int64
	UUID    string
	Body    []byte
	Status  MessageStatus
	Created time.Time
}

type Store struct {
	Log log.Logger

	conn *sqlbridge.Conn
}

// Open opens the database at location. Declared type detection is always
// enabled since Message.Created relies on it.
func Open(ctx context.Context, location string, opts sqlbridge.Options, logger log.Logger) (*Store, error) {
	opts.DetectTypes |= sqlbridge.DetectDeclTypes
	conn, err := sqlbridge.Connect(ctx, location, opts, logger)
	if err != nil {
		return nil, err
	}
	return New(conn, logger), nil
}

// New creates a Store using an existing connection.
func New(conn *sqlbridge.Conn, logger log.Logger) *Store {
	return &Store{
		Log:  logger,
		conn: conn,
	}
}

// Conn returns the underlying connection.
func (s *Store) Conn() *sqlbridge.Conn {
	return s.conn
}

// Init creates missing tables.
func (s *Store) Init(ctx context.Context) error {
	err := s.write(ctx, func(ctx context.Context) error {
		cur, err := s.conn.ExecuteScript(ctx, schema)
		if err != nil {
			return err
		}
		return cur.Close(ctx)
	})
	if err != nil {
		return fmt.Errorf("msgstore: schema init: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// write runs fn in a transaction. Transactions failing with a temporary
// error, such as a database locked by another process, are retried.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := s.conn.Transaction(ctx, fn)
		if err == nil || !exterrors.IsTemporary(err) || attempt == writeAttempts {
			return err
		}

		s.Log.Msg("write transaction failed, retrying", "attempt", attempt, "reason", err.Error())
		select {
		case <-time.After(time.Duration(attempt) * retryDelay):
		case <-ctx.Done():
			return err
		}
	}
}

// insert executes the INSERT statement and returns the rowid of the new row.
func (s *Store) insert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var id int64
	err := s.write(ctx, func(ctx context.Context) error {
		cur, err := s.conn.Execute(ctx, query, args...)
		if err != nil {
			return err
		}
		id = cur.LastRowID()
		return cur.Close(ctx)
	})
	return id, err
}

// update executes the UPDATE statement and returns ErrNotFound if it did
// not change anything.
func (s *Store) update(ctx context.Context, query string, args ...interface{}) error {
	return s.write(ctx, func(ctx context.Context) error {
		cur, err := s.conn.Execute(ctx, query, args...)
		if err != nil {
			return err
		}
		affected := cur.RowCount()
		if err := cur.Close(ctx); err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) queryRow(ctx context.Context, query string, args ...interface{}) (sqlbridge.Row, error) {
	cur, err := s.conn.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	row, err := cur.FetchOne(ctx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return row, nil
}

func (s *Store) queryStatus(ctx context.Context, table string, id int64) (int, error) {
	row, err := s.queryRow(ctx, "SELECT status FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return 0, err
	}
	status, err := asInt64(row[0])
	return int(status), err
}

// CreateMessage stores a new message and returns its ID.
func (s *Store) CreateMessage(ctx context.Context, body []byte, status MessageStatus) (int64, error) {
	if !status.valid() {
		return 0, fmt.Errorf("msgstore: invalid message status: %v", status)
	}
	if body == nil {
		body = []byte{}
	}
	return s.insert(ctx, "INSERT INTO messages (uuid, message, status) VALUES (?, ?, ?)",
		uuid.NewString(), body, int(status))
}

const messageColumns = "id, uuid, message, status, created"

func scanMessage(row sqlbridge.Row) (Message, error) {
	var (
		msg Message
		err error
	)
	if msg.ID, err = asInt64(row[0]); err != nil {
		return Message{}, err
	}
	msg.UUID = asString(row[1])
	msg.Body = asBytes(row[2])
	status, err := asInt64(row[3])
	if err != nil {
		return Message{}, err
	}
	msg.Status = MessageStatus(status)
	if created, ok := row[4].(time.Time); ok {
		msg.Created = created
	}
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (Message, error) {
	row, err := s.queryRow(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	if err != nil {
		return Message{}, err
	}
	return scanMessage(row)
}

// GetMessageByUUID returns the message with the specified external ID.
func (s *Store) GetMessageByUUID(ctx context.Context, id string) (Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Message{}, fmt.Errorf("msgstore: malformed message UUID: %w", err)
	}
	row, err := s.queryRow(ctx, "SELECT "+messageColumns+" FROM messages WHERE uuid = ?", id)
	if err != nil {
		return Message{}, err
	}
	return scanMessage(row)
}

// GetMessages returns messages with the specified IDs in the same order.
// Reads are submitted concurrently.
func (s *Store) GetMessages(ctx context.Context, ids []int64) ([]Message, error) {
	msgs := make([]Message, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			msg, err := s.GetMessage(ctx, id)
			if err != nil {
				return fmt.Errorf("message %d: %w", id, err)
			}
			msgs[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListMessages returns all messages with the specified status ordered by
// ID. Zero status means all messages.
func (s *Store) ListMessages(ctx context.Context, status MessageStatus) ([]Message, error) {
	var (
		cur *sqlbridge.Cursor
		err error
	)
	if status == 0 {
		cur, err = s.conn.Execute(ctx, "SELECT "+messageColumns+" FROM messages ORDER BY id")
	} else {
		cur, err = s.conn.Execute(ctx, "SELECT "+messageColumns+" FROM messages WHERE status = ? ORDER BY id", int(status))
	}
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []Message
	for cur.Next(ctx) {
		msg, err := scanMessage(cur.Row())
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, cur.Err()
}

func (s *Store) SetMessageStatus(ctx context.Context, id int64, status MessageStatus) error {
	if !status.valid() {
		return fmt.Errorf("msgstore: invalid message status: %v", status)
	}
	return s.update(ctx, "UPDATE messages SET status = ? WHERE id = ?", int(status), id)
}

// CreateJob creates a job for the message and returns its ID.
func (s *Store) CreateJob(ctx context.Context, messageID int64, status JobStatus) (int64, error) {
	if !status.valid() {
		return 0, fmt.Errorf("msgstore: invalid job status: %v", status)
	}
	if _, err := s.queryRow(ctx, "SELECT id FROM messages WHERE id = ?", messageID); err != nil {
		return 0, err
	}
	return s.insert(ctx, "INSERT INTO jobs (message_id, status) VALUES (?, ?)", messageID, int(status))
}

func (s *Store) JobStatus(ctx context.Context, id int64) (JobStatus, error) {
	status, err := s.queryStatus(ctx, "jobs", id)
	return JobStatus(status), err
}

func (s *Store) SetJobStatus(ctx context.Context, id int64, status JobStatus) error {
	if !status.valid() {
		return fmt.Errorf("msgstore: invalid job status: %v", status)
	}
	return s.update(ctx, "UPDATE jobs SET status = ? WHERE id = ?", int(status), id)
}

// CreateTask creates a task for the job and returns its ID. Tasks with
// lower priority values are meant to be executed first.
func (s *Store) CreateTask(ctx context.Context, jobID int64, name string, priority int, status TaskStatus) (int64, error) {
	if !status.valid() {
		return 0, fmt.Errorf("msgstore: invalid task status: %v", status)
	}
	if _, err := s.queryRow(ctx, "SELECT id FROM jobs WHERE id = ?", jobID); err != nil {
		return 0, err
	}
	return s.insert(ctx, "INSERT INTO tasks (job_id, name, priority, status) VALUES (?, ?, ?, ?)",
		jobID, name, priority, int(status))
}

func (s *Store) TaskStatus(ctx context.Context, id int64) (TaskStatus, error) {
	status, err := s.queryStatus(ctx, "tasks", id)
	return TaskStatus(status), err
}

func (s *Store) SetTaskStatus(ctx context.Context, id int64, status TaskStatus) error {
	if !status.valid() {
		return fmt.Errorf("msgstore: invalid task status: %v", status)
	}
	return s.update(ctx, "UPDATE tasks SET status = ? WHERE id = ?", int(status), id)
}

func asInt64(v interface{}) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("msgstore: unexpected value type %T, want integer", v)
}

func asString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func asBytes(v interface{}) []byte {
	switch v := v.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}
