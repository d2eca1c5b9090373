/*
 This file has implementation of the main banner for the tool. It is used in cmd/root.go
*/
package utils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const bannerArt = `

  ___ ___  _ __ ___  _ __ | |_   _ ___  ___ __ _ _ __
 / __/ _ \| '_ ` + "`" + ` _ \| '_ \| | | | / __|/ __/ _` + "`" + ` | '_ \
| (_| (_) | | | | | | |_) | | |_| \__ \ (_| (_| | | | |
 \___\___/|_| |_| |_| .__/|_|\__, |___/\___\__,_|_| |_|
                    |_|      |___/
`

func DisplayBanner() {
	color.Magenta(strings.TrimSpace(bannerArt))
	fmt.Println()
	fmt.Println("Declarative multi-cloud compliance scanner")
	fmt.Println("------------------------------------------")
}
