// Package agentrun boots the agent process: storage, queue, auto-flush,
// and the HTTP control API.
package agentrun
