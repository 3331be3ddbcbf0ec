// Package main provides the playcrawler CLI.
//
// Usage:
//
//	playcrawler metadata apps.txt
//	playcrawler download --downloader ./fetch-apk -- apps.txt
//	playcrawler details com.example.app
//	playcrawler applist --country us
//
// See --help for all available options.
package main

func main() {
	Execute()
}
