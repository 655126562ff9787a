// Command codescan scans barcodes and QR codes from a camera.
package main

func main() {
	Execute()
}
