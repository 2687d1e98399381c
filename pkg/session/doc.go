/*
Package session serializes runs per thread.

A Manager hands out one lock per thread id, backed by an in-process
semaphore and, when configured, a ports.DistributedLocker so that replicas
sharing a durable store never run the same thread concurrently. Distinct
threads never contend.
*/
package session
