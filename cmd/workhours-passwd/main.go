// Command workhours-passwd prints a bcrypt hash for EDIT_PASSWORD_HASH.
//
// The password is read from the first line of stdin so it stays out of the
// shell history:
//
//	printf '%s\n' 'secret' | workhours-passwd
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"workhours/internal/auth"
)

func main() {
	envLine := flag.Bool("env", false, "print as an EDIT_PASSWORD_HASH= line for a .env file")
	flag.Parse()

	fmt.Fprint(os.Stderr, "Edit password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatalf("read password: %v", err)
	}
	password := strings.TrimRight(line, "\r\n")

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Fprintln(os.Stderr)

	if *envLine {
		// Single quotes keep godotenv from expanding the $ signs
		fmt.Printf("EDIT_PASSWORD_HASH='%s'\n", hash)
		return
	}
	fmt.Println(hash)
}
