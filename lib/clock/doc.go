// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every gatekeeper component that
// waits, schedules, or stamps records.
//
// Production wiring passes [Real]. Tests pass a [FakeClock] from [Fake],
// whose time moves only when [FakeClock.Advance] is called. That is how
// the revocation sweep interval, the pending-session TTL, the redirect
// notice lifetime, and the text-generation backoff are exercised without
// sleeping.
//
// A goroutine that registers a timer races the test that advances the
// clock. [FakeClock.WaitForTimers] closes that race:
//
//	go scheduler.Run(ctx)
//	fakeClock.WaitForTimers(1)   // the ticker is registered
//	fakeClock.Advance(12 * time.Hour)
package clock
