// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/google/uuid"

	"github.com/paasta-tools/paasta/pkg/observability"
)

// ZookeeperStore keeps state in a ZooKeeper ensemble.
type ZookeeperStore struct {
	conn *zk.Conn
	acl  []zk.ACL
}

// zkLogger routes client chatter to debug logs.
type zkLogger struct {
	log observability.Logger
}

func (l zkLogger) Printf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...), observability.String("component", "zookeeper"))
}

// DialZookeeper connects to the ensemble. The client reconnects in the
// background; the first request blocks until a session is established or
// the session timeout passes.
func DialZookeeper(hosts []string, sessionTimeout time.Duration, log observability.Logger) (*ZookeeperStore, error) {
	if len(hosts) == 0 {
		return nil, errors.New("no zookeeper hosts configured")
	}
	if log == nil {
		log = observability.NewNop()
	}
	conn, _, err := zk.Connect(hosts, sessionTimeout, zk.WithLogger(zkLogger{log: log}))
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}
	return &ZookeeperStore{conn: conn, acl: zk.WorldACL(zk.PermAll)}, nil
}

// Get retrieves a node's data.
func (z *ZookeeperStore) Get(ctx context.Context, path string) ([]byte, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := z.conn.Get(p)
	if errors.Is(err, zk.ErrNoNode) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return data, nil
}

// Set ensures the path exists and writes data to it.
func (z *ZookeeperStore) Set(ctx context.Context, path string, data []byte) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	if err := z.ensurePath(ctx, p); err != nil {
		return err
	}
	if _, err := z.conn.Set(p, data, -1); err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	return nil
}

// ensurePath creates p and its parents with empty data.
func (z *ZookeeperStore) ensurePath(ctx context.Context, p string) error {
	for _, node := range append(parents(p), p) {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := z.conn.Create(node, []byte{}, 0, z.acl)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("create %s: %w", node, err)
		}
	}
	return nil
}

// Lock follows the layout of kazoo's Lock recipe so Python and Go runs
// exclude each other: path is a persistent node and every contender
// creates an ephemeral sequential child "<hex>__lock__<seq>" under it. The
// contender with the lowest sequence holds the lock; the others watch
// their predecessor until timeout.
func (z *ZookeeperStore) Lock(ctx context.Context, path string, timeout time.Duration) (Lock, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := z.ensurePath(ctx, p); err != nil {
		return nil, err
	}

	owner, _ := os.Hostname()
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "") + lockNodeName
	node, err := z.conn.Create(p+"/"+prefix, []byte(owner), zk.FlagEphemeral|zk.FlagSequence, z.acl)
	if err != nil {
		return nil, fmt.Errorf("create lock node under %s: %w", p, err)
	}
	lock := &zkLock{conn: z.conn, path: node}
	ours := node[strings.LastIndex(node, "/")+1:]

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		children, _, err := z.conn.Children(p)
		if err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("list lock %s: %w", p, err)
		}
		predecessor, found := lockPredecessor(children, ours)
		if !found {
			return nil, fmt.Errorf("lock node %s vanished", node)
		}
		if predecessor == "" {
			return lock, nil
		}

		exists, _, events, err := z.conn.ExistsW(p + "/" + predecessor)
		if err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("watch lock %s: %w", p, err)
		}
		if !exists {
			continue
		}
		select {
		case <-events:
		case <-timer.C:
			lock.Unlock()
			return nil, lockHeld(p)
		case <-ctx.Done():
			lock.Unlock()
			return nil, ctx.Err()
		}
	}
}

const (
	lockNodeName     = "__lock__"
	readLockNodeName = "__rlock__"
)

// lockPredecessor orders the contenders by sequence number and returns the
// child just ahead of ours, or "" when ours is first. found is false when
// ours is not among children.
func lockPredecessor(children []string, ours string) (predecessor string, found bool) {
	var contenders []string
	for _, c := range children {
		if strings.Contains(c, lockNodeName) || strings.Contains(c, readLockNodeName) {
			contenders = append(contenders, c)
		}
	}
	sort.Slice(contenders, func(i, j int) bool {
		return lockSequence(contenders[i]) < lockSequence(contenders[j])
	})
	for i, c := range contenders {
		if c == ours {
			if i == 0 {
				return "", true
			}
			return contenders[i-1], true
		}
	}
	return "", false
}

// lockSequence returns the zero padded sequence suffix of a contender.
func lockSequence(child string) string {
	if i := strings.Index(child, readLockNodeName); i >= 0 {
		return child[i+len(readLockNodeName):]
	}
	if i := strings.Index(child, lockNodeName); i >= 0 {
		return child[i+len(lockNodeName):]
	}
	return child
}

// Close ends the session, which removes any lock nodes it still owns.
func (z *ZookeeperStore) Close() error {
	z.conn.Close()
	return nil
}

type zkLock struct {
	conn *zk.Conn
	path string
	once sync.Once
}

func (l *zkLock) Unlock() error {
	var err error
	l.once.Do(func() {
		err = l.conn.Delete(l.path, -1)
		if errors.Is(err, zk.ErrNoNode) {
			err = nil
		}
	})
	return err
}
