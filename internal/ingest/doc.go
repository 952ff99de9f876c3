// Package ingest bridges the MQTT transport to the history sync engine.
//
// Field collectors buffer readings locally and publish them in batches;
// because sync is idempotent, collectors may republish the same batch
// until they see a result message, giving at-least-once delivery without
// duplicate history entries.
package ingest
