// LogSentry - container log analysis daemon.
// Sample. Summarize. Report.
package main

func main() {
	Execute()
}
