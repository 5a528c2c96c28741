// Command hashpassword prints an argon2id hash for AUTH_BOOTSTRAP_PASSWORD_HASH
// or for seeding rows in the admins table. The password is read from the first
// argument, or from stdin when no argument is given.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"taskadmin/admin-console/internal/auth"
)

func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "read password: %v\n", err)
			os.Exit(2)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if err := auth.CheckPasswordPolicy(password); err != nil {
		fmt.Fprintf(os.Stderr, "password rejected: %v (at least %d characters, no surrounding spaces)\n", err, auth.MinPasswordLength)
		os.Exit(1)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
