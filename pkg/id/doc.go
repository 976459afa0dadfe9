// Package id generates 128-bit, lexicographically sortable identifiers.
//
// locq tags every delivery attempt with one of these so the ingestion
// service can deduplicate at-least-once redelivery of the same batch.
package id
