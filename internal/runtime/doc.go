// Package runtime assembles the agent: storage, configuration, the
// delivery client, and the outbound location queue.
package runtime
