package main

import (
	"context"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"bombfield/server/internal/client"
	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/net/ws"
	"bombfield/server/internal/telemetry"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "authority websocket endpoint")
	codecName := flag.String("codec", "json", "wire codec: json or msgpack")
	duration := flag.Duration("duration", 0, "stop after this long, 0 runs until interrupted")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for the wander behaviour")
	flag.Parse()

	codec, err := proto.CodecByName(*codecName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	conn, err := ws.Dial(dialCtx, *url, codec)
	cancel()
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer conn.Close()

	logger := telemetry.WrapLogger(log.Default())
	participant := client.New(client.Config{Logger: logger}, conn)
	participant.OnScore = func(total, delta int64) {
		logger.Printf("[bot] score %d (%+d)", total, delta)
	}

	b := newBot(participant, rand.New(rand.NewSource(*seed)))
	if err := run(ctx, conn, b, logger); err != nil {
		log.Fatalf("%v", err)
	}
	logger.Printf("[bot] done at tick %d with score %d", participant.Tick(), participant.Score())
}

// receiver is the read half of the connection.
type receiver interface {
	Receive() (proto.Message, error)
}

// run pumps received messages into the participant and steps it at the
// authority tick rate until ctx ends or the connection drops.
func run(ctx context.Context, conn receiver, b *bot, logger telemetry.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	inbox := make(chan proto.Message, 256)
	readErr := make(chan error, 1)
	go func() {
		readErr <- receiveLoop(ctx, conn, inbox)
	}()

	step := time.Second / 50
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case msg := <-inbox:
			if msg.Type == proto.TypeWelcome && msg.Welcome.TickRate > 0 {
				step = time.Second / time.Duration(msg.Welcome.TickRate)
				ticker.Reset(step)
			}
			if err := b.participant.Handle(msg); err != nil {
				logger.Printf("[bot] %v", err)
			}
		case <-ticker.C:
			if err := b.step(step); err != nil {
				logger.Printf("[bot] %v", err)
			}
		}
	}
}

// receiveLoop forwards messages to inbox until the connection fails or ctx
// ends. It returns nil only when ctx ended.
func receiveLoop(ctx context.Context, conn receiver, inbox chan<- proto.Message) error {
	for {
		msg, err := conn.Receive()
		if err != nil {
			return err
		}
		select {
		case inbox <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// bot wanders in a random direction, changing course now and then, and
// jumps, drops bombs and shoots at random.
type bot struct {
	participant *client.Participant
	rng         *rand.Rand
	untilTurn   time.Duration
}

const (
	turnInterval = 2 * time.Second
	jumpChance   = 0.01
	bombChance   = 0.004
	shootChance  = 0.02
)

func newBot(participant *client.Participant, rng *rand.Rand) *bot {
	return &bot{participant: participant, rng: rng}
}

func (b *bot) step(dt time.Duration) error {
	if _, ok := b.participant.Player(); !ok {
		return b.participant.Update(dt)
	}
	b.untilTurn -= dt
	if b.untilTurn <= 0 {
		b.untilTurn = turnInterval
		angle := b.rng.Float64() * 2 * math.Pi
		b.participant.RequestMove(mgl32.Vec2{float32(math.Cos(angle)), float32(math.Sin(angle))})
	}
	if b.rng.Float64() < jumpChance {
		b.participant.RequestJump()
	}
	if b.rng.Float64() < bombChance {
		if err := b.participant.RequestDropBomb(); err != nil {
			return err
		}
	}
	if b.rng.Float64() < shootChance {
		b.participant.RequestShoot()
	}
	return b.participant.Update(dt)
}
