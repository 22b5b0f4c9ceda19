/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package common

import (
	"errors"
	"sync/atomic"
)

var ErrSinkSealed = errors.New("the sink is sealed")

// Anything that accepts messages, e.g. a `Worker`.
type Receiver[T any] interface {
	Send(T) error
}

// SinkWithSender is a helper struct that allows to send messages to a message sink.
// The SinkWithSender abstracts the message sink which has a certain sender, so that
// the sender does not have to be specified every time a message is sent.
// At the same it guarantees that the caller can't alter the `sender`, which means that
// the sender can't impersonate another sender (and we guarantee this on a compile-time).
type SinkWithSender[SenderType comparable, MessageType any] struct {
	// The sender of the messages. This is useful for multiple-producer-single-consumer scenarios.
	sender SenderType
	// The message sink to which the messages are sent.
	messageSink Receiver[Message[SenderType, MessageType]]
	// Once sealed, **the current sender** (but not other senders sharing the same receiver)
	// won't be able to send any more messages.
	sealed atomic.Bool
}

// Creates a new sink. Note that the sink does not own the receiver, so sealing the sink
// does not stop the receiver.
func NewSink[S comparable, M any](sender S, messageSink Receiver[Message[S, M]]) *SinkWithSender[S, M] {
	return &SinkWithSender[S, M]{
		sender:      sender,
		messageSink: messageSink,
	}
}

// Sends a message to the message sink.
func (s *SinkWithSender[S, M]) Send(message M) error {
	if s.sealed.Load() {
		return ErrSinkSealed
	}

	return s.messageSink.Send(Message[S, M]{
		Sender:  s.sender,
		Content: message,
	})
}

// Seals the sink, which means that no messages could be sent via this sink.
// Any attempt to send a message would result in an error.
func (s *SinkWithSender[S, M]) Seal() {
	s.sealed.Store(true)
}

// A message tagged with its sender.
type Message[SenderType comparable, MessageType any] struct {
	// The sender of the message.
	Sender SenderType
	// The content of the message.
	Content MessageType
}
