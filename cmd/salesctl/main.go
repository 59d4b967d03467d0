// salesctl is a one-shot command line client for the sales server.
//
//	salesctl -addr localhost:12345 register alice secret
//	salesctl -user alice -pass secret add apple 3 1.50
//	salesctl -user alice -pass secret qty apple 7
//	salesctl -user alice -pass secret filter 0 apple pear
//	salesctl -user alice -pass secret watch-both apple pear
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"saleswatch/client"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: salesctl [-addr host:port] [-user name -pass pw] <command> [args]

commands:
  register <user> <pass>          create an account
  add <product> <qty> <price>     record a sale on the current day
  qty <product> <days>            total quantity over the window
  volume <product> <days>         total revenue over the window
  avg <product> <days>            average price over the window
  max <product> <days>            highest price over the window
  filter <dayOffset> [product...] list a day's events (0 = today)
  watch-both <p1> <p2>            block until both products sell today
  watch-run <n>                   block until n consecutive same-product sales
  newday                          rotate the current day`)
	os.Exit(2)
}

func main() {
	addr := flag.String("addr", "localhost:12345", "server address")
	user := flag.String("user", "", "username to log in with")
	pass := flag.String("pass", "", "password to log in with")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	c, err := client.Dial(*addr)
	if err != nil {
		log.Fatalf("connect %s: %v", *addr, err)
	}
	defer c.Close()

	cmd, args := args[0], args[1:]
	if cmd != "register" && *user != "" {
		if err := c.Login(*user, *pass); err != nil {
			log.Fatalf("login: %v", err)
		}
	}

	switch cmd {
	case "register":
		if len(args) != 2 {
			usage()
		}
		if err := c.Register(args[0], args[1]); err != nil {
			log.Fatalf("register: %v", err)
		}
		fmt.Println("registered")

	case "add":
		if len(args) != 3 {
			usage()
		}
		qty := parseInt(args[1])
		price, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			log.Fatalf("bad price %q", args[2])
		}
		if err := c.AddEvent(args[0], qty, price); err != nil {
			log.Fatalf("add: %v", err)
		}
		fmt.Println("recorded")

	case "qty":
		if len(args) != 2 {
			usage()
		}
		v, err := c.QuantitySold(args[0], parseInt(args[1]))
		if err != nil {
			log.Fatalf("qty: %v", err)
		}
		fmt.Println(v)

	case "volume":
		if len(args) != 2 {
			usage()
		}
		v, err := c.SalesVolume(args[0], parseInt(args[1]))
		if err != nil {
			log.Fatalf("volume: %v", err)
		}
		fmt.Printf("%.2f\n", v)

	case "avg":
		if len(args) != 2 {
			usage()
		}
		v, err := c.AveragePrice(args[0], parseInt(args[1]))
		if err != nil {
			log.Fatalf("avg: %v", err)
		}
		fmt.Printf("%.4f\n", v)

	case "max":
		if len(args) != 2 {
			usage()
		}
		v, err := c.MaxPrice(args[0], parseInt(args[1]))
		if err != nil {
			log.Fatalf("max: %v", err)
		}
		fmt.Printf("%.2f\n", v)

	case "filter":
		if len(args) < 1 {
			usage()
		}
		events, err := c.FilterEvents(args[1:], parseInt(args[0]))
		if err != nil {
			log.Fatalf("filter: %v", err)
		}
		for _, ev := range events {
			fmt.Printf("%s\tqty=%d\tprice=%.2f\tts=%d\n", ev.Product, ev.Quantity, ev.Price, ev.Timestamp)
		}

	case "watch-both":
		if len(args) != 2 {
			usage()
		}
		ok, err := c.SimultaneousSales(args[0], args[1])
		if err != nil {
			log.Fatalf("watch-both: %v", err)
		}
		if ok {
			fmt.Println("both sold")
		} else {
			fmt.Println("day ended first")
		}

	case "watch-run":
		if len(args) != 1 {
			usage()
		}
		product, err := c.ConsecutiveSales(parseInt(args[0]))
		if err != nil {
			log.Fatalf("watch-run: %v", err)
		}
		if product == "" {
			fmt.Println("day ended first")
		} else {
			fmt.Println(product)
		}

	case "newday":
		if err := c.NewDay(); err != nil {
			log.Fatalf("newday: %v", err)
		}
		fmt.Println("day rotated")

	default:
		usage()
	}
}

func parseInt(s string) int32 {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("bad number %q", s)
	}
	return int32(n)
}
