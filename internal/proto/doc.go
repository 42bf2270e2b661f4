// Package proto holds the permitauth.v1 messages and gRPC stubs generated
// from auth.proto.
package proto

//go:generate protoc --go_out=. --go_opt=paths=source_relative --go-grpc_out=. --go-grpc_opt=paths=source_relative auth.proto
