// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "sort"

// Passphrase is the passphrase test archives are sealed under.
const Passphrase = "correct horse battery staple"

// Sources are fixture programs keyed by a short name.
var Sources = map[string]string{
	"identity": "def f(x):\n return x\n",
	"arithmetic": `total = 0
for value in range(10):
    if value % 2 == 0:
        total += value * 3
    else:
        total -= value
print(total)
`,
	"classes": `class Account:
    rate = 0.05

    def __init__(self, owner, balance=0):
        self.owner = owner
        self.balance = balance

    def deposit(self, amount):
        if amount <= 0:
            raise ValueError("amount must be positive")
        self.balance += amount
        return self.balance
`,
	"comprehensions": `squares = [n * n for n in range(20) if n % 3]
lookup = {name: len(name) for name in ["alpha", "beta", "gamma"]}
flags = {True, False, None}
pairs = [(a, b) for a in range(3) for b in "xy"]
`,
	"control": `import os
from collections import OrderedDict as OD


def walk(root, depth=2, *rest, verbose=False, **options):
    try:
        with open(root) as handle:
            data = handle.read()
    except OSError as error:
        return None
    finally:
        pass
    while depth > 0:
        depth -= 1
        if not data:
            break
        continue
    return lambda item: item.strip()
`,
}

// SourceNames returns the keys of [Sources] in sorted order.
func SourceNames() []string {
	names := make([]string, 0, len(Sources))
	for name := range Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
