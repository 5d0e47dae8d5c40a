// Package main implements the migrate CLI.
// It runs, checks and inspects the database migration task outside of a Pulumi deployment.
package main

import "github.com/pulumi/pulumi-self-hosted-installers/ecs-hosted/migrations/cmd/migrate/cmd"

func main() {
	cmd.Execute()
}
