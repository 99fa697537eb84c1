/*
Package statemachine generates sequences of discrete states from a weighted
transition graph.

A graph maps each source state to a weighted set of target states. Two
sentinels complete it: START, the synthetic entry point, written as a nil
From, and END, termination, written as a nil To. A Machine emits one state per
call until it draws END; a TransitionGenerator emits the (from, to) pairs
instead, beginning with (START, first) and ending with (last, END).

Graphs are checked when the machine is initialized: every state reachable
from START must be able to reach END, so generation always terminates with
probability one.
*/
package statemachine
