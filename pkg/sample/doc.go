/*
Package sample implements weighted random sampling over an ordered set of
values, and a Generator that draws from such a set indefinitely.

Weights are non-negative relative frequencies; they do not need to sum to
one. A set whose weights are all zero is treated as unweighted and every
member is drawn with equal probability.
*/
package sample
