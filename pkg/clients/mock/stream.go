package mock

import (
	"errors"

	"github.com/ethereum/go-ethereum/event"
)

// Silent returns a subscription that yields nothing until unsubscribed.
func Silent() event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

// Feed delivers items to sink in order and then stays open until unsubscribed.
func Feed[T any](sink chan<- T, items ...T) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, item := range items {
			select {
			case sink <- item:
			case <-quit:
				return nil
			}
		}
		<-quit
		return nil
	})
}

// FeedAndClose delivers items to sink in order and then ends the stream.
func FeedAndClose[T any](sink chan<- T, items ...T) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, item := range items {
			select {
			case sink <- item:
			case <-quit:
				return nil
			}
		}
		return nil
	})
}

// Failing returns a subscription that fails with err after delivering items.
func Failing[T any](sink chan<- T, err error, items ...T) event.Subscription {
	if err == nil {
		err = errors.New("subscription failed")
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, item := range items {
			select {
			case sink <- item:
			case <-quit:
				return nil
			}
		}
		return err
	})
}
