// Package api exposes the chat endpoint and the operation listing over HTTP.
package api
