/*
Package testutil provides testing utilities for the tick relay.

It contains fake delivery handles that capture Begin and DeliverTick
calls, plus small helpers for waiting on asynchronous tick deliveries
in scheduler and service tests.
*/
package testutil
